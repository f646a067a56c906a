package cli

import (
	"os"

	"github.com/mrz1836/dappbridge/internal/config"
	"github.com/mrz1836/dappbridge/internal/output"
	"github.com/mrz1836/dappbridge/internal/storage"
	bridgeerr "github.com/mrz1836/dappbridge/pkg/errors"
)

// CommandContext holds dependencies for CLI commands.
type CommandContext struct {
	Config    *config.Config
	Logger    *config.Logger
	Formatter *output.Formatter
	Store     storage.Store
}

// NewCommandContext creates a context with the given dependencies.
func NewCommandContext(cfg *config.Config, logger *config.Logger, formatter *output.Formatter) *CommandContext {
	return &CommandContext{
		Config:    cfg,
		Logger:    logger,
		Formatter: formatter,
	}
}

// WithStore sets the storage backend.
func (c *CommandContext) WithStore(s storage.Store) *CommandContext {
	c.Store = s
	return c
}

// OpenStore returns the configured store, opening the storage file on first use.
func (c *CommandContext) OpenStore() (storage.Store, error) {
	if c.Store != nil {
		return c.Store, nil
	}

	path := c.Config.GetStorageFile()
	passphrase, err := storagePassphrase(path, c.Config.Storage.Encrypt)
	if err != nil {
		return nil, err
	}
	c.Store = storage.NewFileStore(path, passphrase)
	c.Logger.Debug("cli: storage at %s (sealed: %t)", path, passphrase != "")
	return c.Store, nil
}

// storagePassphrase finds the passphrase for the storage file. The
// environment wins; otherwise the user is asked when the file is sealed or
// encryption is enabled.
func storagePassphrase(path string, encrypt bool) (string, error) {
	if p, ok := config.StoragePassphrase(); ok {
		return p, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from config
	switch {
	case err == nil && storage.IsSealed(data):
		return promptPassphraseFn("Storage passphrase: ")
	case err != nil && !os.IsNotExist(err):
		return "", bridgeerr.Wrap(err, "reading storage")
	case encrypt:
		return promptNewPassphraseFn()
	default:
		return "", nil
	}
}

// loadDocument opens the store and loads the document.
func loadDocument() (storage.Store, *storage.Document, error) {
	store, err := cmdCtx.OpenStore()
	if err != nil {
		return nil, nil, err
	}
	doc, err := store.Load()
	if err != nil {
		return nil, nil, err
	}
	return store, doc, nil
}

// updateDocument loads the document, applies mutate and saves it.
func updateDocument(mutate func(doc *storage.Document) error) error {
	store, doc, err := loadDocument()
	if err != nil {
		return err
	}
	if err := mutate(doc); err != nil {
		return err
	}
	return store.Save(doc)
}
