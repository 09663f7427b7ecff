package main

import "github.com/hurou927/dbmeta/cmd"

func main() {
	cmd.Execute()
}
