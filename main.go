package main

import "github.com/DaniruKun/repcounter/cmd"

func main() {
	cmd.Execute()
}
