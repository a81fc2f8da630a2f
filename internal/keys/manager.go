package keys

import (
	"context"
	"errors"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"remitlend/internal/txflow"
)

// Manager wraps an encrypted keystore directory and hands out signing
// capabilities for individual accounts. It exists for the daemon and
// CLI; the pipeline itself only ever sees the txflow.Signer interface.
type Manager struct {
	ks         *keystore.KeyStore
	passphrase string
	dir        string
}

func NewManager(dir string, passphrase string) (*Manager, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("keystore dir is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	ks := keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP)
	return &Manager{ks: ks, passphrase: passphrase, dir: dir}, nil
}

func (m *Manager) CreateAccount() (common.Address, error) {
	if m.passphrase == "" {
		return common.Address{}, errors.New("keystore passphrase is empty")
	}
	acct, err := m.ks.NewAccount(m.passphrase)
	if err != nil {
		return common.Address{}, err
	}
	return acct.Address, nil
}

func (m *Manager) Accounts() []common.Address {
	acctList := m.ks.Accounts()
	out := make([]common.Address, 0, len(acctList))
	for _, acct := range acctList {
		out = append(out, acct.Address)
	}
	return out
}

func (m *Manager) findAccount(addr common.Address) (accounts.Account, error) {
	for _, acct := range m.ks.Accounts() {
		if acct.Address == addr {
			return acct, nil
		}
	}
	return accounts.Account{}, errors.New("account not found")
}

// SignerFor returns the signing capability for addr. The capability
// decodes the unsigned encoding, signs with the keystore, and returns
// the signed encoding.
func (m *Manager) SignerFor(addr common.Address) txflow.Signer {
	return txflow.SignerFunc(func(_ context.Context, rawTx []byte, chainID *big.Int) ([]byte, error) {
		if m.passphrase == "" {
			return nil, errors.New("keystore passphrase is empty")
		}
		acct, err := m.findAccount(addr)
		if err != nil {
			return nil, err
		}
		tx := new(types.Transaction)
		if err := tx.UnmarshalBinary(rawTx); err != nil {
			return nil, err
		}
		signed, err := m.ks.SignTxWithPassphrase(acct, m.passphrase, tx, chainID)
		if err != nil {
			return nil, err
		}
		return signed.MarshalBinary()
	})
}
