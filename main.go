package main

import "github.com/qobs-build/cpproj/cmd"

func main() {
	cmd.Execute()
}
