package cmd

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/ardanlabs/blockforest/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var (
	nonce uint64
	to    string
	value int64
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send transaction",
	Run: func(cmd *cobra.Command, args []string) {
		privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
		if err != nil {
			log.Fatal(err)
		}

		if err := sendWithDetails(privateKey); err != nil {
			log.Fatal(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the node.")
	sendCmd.Flags().Uint64VarP(&nonce, "nonce", "n", 0, "Nonce that makes the transaction unique.")
	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Account to send value to.")
	sendCmd.Flags().Int64VarP(&value, "value", "v", 0, "Value to send.")
}

func sendWithDetails(privateKey *ecdsa.PrivateKey) error {
	toID, err := database.ToAccountID(to)
	if err != nil {
		return err
	}

	if value <= 0 {
		return errors.New("value must be positive")
	}

	from := database.PublicKeyToAccountID(privateKey.PublicKey)
	info, err := queryUnspent(from)
	if err != nil {
		return err
	}

	refs, change, err := selectInputs(info.UTXOs, value)
	if err != nil {
		return err
	}

	outputs := []database.Output{{Value: value, Owner: toID}}
	if change > 0 {
		outputs = append(outputs, database.Output{Value: change, Owner: from})
	}

	tx := database.NewTx(nonce, refs, outputs)
	if err := tx.SignAll(privateKey); err != nil {
		return err
	}

	data, err := json.Marshal(tx)
	if err != nil {
		return err
	}

	resp, err := http.Post(fmt.Sprintf("%s/v1/tx/submit", url), "application/json", bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("node responded with status %d: %s", resp.StatusCode, body)
	}

	fmt.Println(string(body))
	return nil
}

// selectInputs picks outputs in the order the node listed them until they
// cover the amount and returns the refs plus what is left over.
func selectInputs(utxos []unspent, amount int64) ([]database.OutputRef, int64, error) {
	var refs []database.OutputRef
	var sum int64

	for _, u := range utxos {
		if sum >= amount {
			break
		}
		refs = append(refs, u.Ref)
		sum += u.Value
	}

	if sum < amount {
		return nil, 0, fmt.Errorf("insufficient funds: have %d, need %d", sum, amount)
	}

	return refs, sum - amount, nil
}
