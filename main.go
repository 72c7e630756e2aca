// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/invowk/scribe/cmd/scribe"

func main() {
	cmd.Execute()
}
