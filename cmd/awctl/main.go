package main

import "github.com/SoarinFerret/AttokWarden/cmd/awctl/arg"

func main() {
	arg.Execute()
}
