package main

import "github.com/gregriff/lanmic/cmd"

func main() {
	cmd.Execute()
}
