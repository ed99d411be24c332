package infra

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"sahyog-sutra/core/domain"

	"go.uber.org/multierr"
)

// SnapshotFiles guarda a tabela durable em dois arquivos JSON (primário e
// backup), UTF-8, indentados para leitura humana.
type SnapshotFiles struct {
	Primary string
	Backup  string
}

// Save grava os dois arquivos. Erro em um não impede a tentativa no outro.
func (f SnapshotFiles) Save(tb domain.Table) error {
	data, err := encodeTable(tb)
	if err != nil {
		return err
	}
	err = writeFileAtomic(f.Primary, data)
	if f.Backup != "" {
		err = multierr.Append(err, writeFileAtomic(f.Backup, data))
	}
	return err
}

// Load lê o primário; se ele faltar ou estiver corrompido, tenta o backup.
// Nenhum dos dois existir não é erro: a tabela começa vazia.
func (f SnapshotFiles) Load() (domain.Table, error) {
	tb, err := readTable(f.Primary)
	if err == nil {
		return tb, nil
	}
	if f.Backup == "" {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.Table{}, nil
		}
		return nil, err
	}

	btb, berr := readTable(f.Backup)
	if berr == nil {
		return btb, nil
	}
	if errors.Is(err, fs.ErrNotExist) && errors.Is(berr, fs.ErrNotExist) {
		return domain.Table{}, nil
	}
	return nil, multierr.Append(err, berr)
}

func encodeTable(tb domain.Table) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(tb); err != nil {
		return nil, fmt.Errorf("encoding translations: %w", err)
	}
	return buf.Bytes(), nil
}

func readTable(path string) (domain.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	tb := domain.Table{}
	if err := json.Unmarshal(data, &tb); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return tb, nil
}

// writeFileAtomic grava em arquivo temporário no mesmo diretório e renomeia,
// para que um leitor nunca veja o arquivo pela metade.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming %s: %w", path, err)
	}
	return nil
}
