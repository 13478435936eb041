// Small helper to generate dev STARK keys and print
// - private key (hex felt)
// - public key (x coordinate of key*G)
//
// Usage: go run ./scripts/gen-keys.go
package main

import (
	"fmt"

	"github.com/compose-network/saya/x/settlement"
)

func gen(label string) {
	signer, priv, err := settlement.GenerateStarkSigner()
	if err != nil {
		panic(err)
	}
	fmt.Printf("%s_PRIVATE_KEY_HEX=%s\n%s_PUBLIC_KEY=%s\n\n", label, priv, label, signer.PublicKey().String())
}

func main() {
	gen("SETTLEMENT")
}
