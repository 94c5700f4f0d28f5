// Package main provides a one-shot utility for access token key generation.
//
// It emits the asymmetric keypair used to sign and verify survey access
// tokens embedded in invitation links.
package main

import (
	"os"

	"github.com/louisbranch/surveycast/internal/platform/config"
	"github.com/louisbranch/surveycast/internal/tools/accesstoken"
)

func main() {
	if err := accesstoken.Run(os.Stdout, nil); err != nil {
		config.Exitf("generate access token key: %v", err)
	}
}
