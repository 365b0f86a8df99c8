// Command sniper watches Solana transfer activity for coordinated wallet
// clusters and trades the tokens they accumulate.
package main

import "solana-cluster-sniper/internal/cli"

func main() {
	cli.Execute()
}
