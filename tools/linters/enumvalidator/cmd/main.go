package main

import (
	"golang.org/x/tools/go/analysis/singlechecker"

	"storefront.chat/relay/tools/linters/enumvalidator"
)

func main() {
	singlechecker.Main(enumvalidator.Analyzer)
}
