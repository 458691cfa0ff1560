// The main package for the cookie-crawler executable.
package main

import (
	"github.com/JakeFAU/cookie-crawler/cmd"
)

func main() {
	cmd.Execute()
}
