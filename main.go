package main

import "github.com/nextlevelbuilder/datalens/cmd"

func main() {
	cmd.Execute()
}
