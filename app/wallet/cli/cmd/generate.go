package cmd

import (
	"fmt"
	"log"

	"github.com/ardanlabs/blockforest/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new key pair and print the account that owns outputs with it",
	Run:   generateRun,
}

func init() {
	rootCmd.AddCommand(generateCmd)
}

func generateRun(cmd *cobra.Command, args []string) {
	path := getPrivateKeyPath()

	accountID, err := generateKey(path)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("Key File:", path)
	fmt.Println("Account:", accountID)
}

// generateKey writes a new private key to the path and returns the account
// outputs must name to be spendable with it.
func generateKey(path string) (database.AccountID, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return "", err
	}

	if err := crypto.SaveECDSA(path, privateKey); err != nil {
		return "", fmt.Errorf("saving key: %w", err)
	}

	return database.PublicKeyToAccountID(privateKey.PublicKey), nil
}
