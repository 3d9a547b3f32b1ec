package cmd

import (
	"fmt"
)

const banner = `
  ____  _                  __                 _   
 / ___|| |_ ___  _ __ ___ / _|_ __ ___  _ __ | |_ 
 \___ \| __/ _ \| '__/ _ \ |_| '__/ _ \| '_ \| __|
  ___) | || (_) | | |  __/  _| | | (_) | | | | |_ 
 |____/ \__\___/|_|  \___|_| |_|  \___/|_| |_|\__|
`

func printBanner(env string) {
	fmt.Printf("\x1b[34m%s\x1b[0m\n", banner)
	fmt.Printf("\x1b[32m  Sessions & Payments - Version %s (%s)\x1b[0m\n\n", Version, env)
}
