// Command elfgen drives object.Emitter to produce ELF32 (i386) relocatable
// object files.
package main

import "github.com/arc-language/elfgen/cmd/elfgen/cmd"

func main() {
	cmd.Execute()
}
