package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/ardanlabs/blockforest/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

type unspent struct {
	Ref   database.OutputRef `json:"ref"`
	Value int64              `json:"value"`
	Owner database.AccountID `json:"owner"`
}

type unspentInfo struct {
	HeadHash database.Hash      `json:"head_hash"`
	Height   int                `json:"height"`
	Account  database.AccountID `json:"account"`
	Balance  int64              `json:"balance"`
	UTXOs    []unspent          `json:"utxos"`
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print your balance on the tallest branch.",
	Run:   balanceRun,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
	balanceCmd.Flags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the node.")
}

func balanceRun(cmd *cobra.Command, args []string) {
	privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
	if err != nil {
		log.Fatal(err)
	}

	accountID := database.PublicKeyToAccountID(privateKey.PublicKey)
	fmt.Println("For Account:", accountID)

	info, err := queryUnspent(accountID)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Height %d, %d outputs\n", info.Height, len(info.UTXOs))
	fmt.Println(info.Balance)
}

// queryUnspent asks the node for the account's unspent outputs.
func queryUnspent(accountID database.AccountID) (unspentInfo, error) {
	resp, err := http.Get(fmt.Sprintf("%s/v1/utxo/list/%s", url, accountID))
	if err != nil {
		return unspentInfo{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return unspentInfo{}, fmt.Errorf("node responded with status %d", resp.StatusCode)
	}

	var info unspentInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return unspentInfo{}, err
	}

	return info, nil
}
