package main

import "github.com/vibast-solutions/ms-go-amazonpay/cmd"

func main() {
	cmd.Execute()
}
