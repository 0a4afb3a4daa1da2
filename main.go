/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/blue-carbon-registry/apiserver/cmd"

func main() {
	cmd.Execute()
}
