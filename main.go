package main

import "github.com/nextlevelbuilder/salebot/cmd"

func main() {
	cmd.Execute()
}
