package model

import (
	"encoding/gob"
	"io"
	"os"
	"path/filepath"

	perrors "github.com/letstravel/prospensity/pkg/errors"
)

// SaveModel はモデルをファイルに保存する
//
// 親ディレクトリが存在しない場合は作成する。書き込みは同じディレクトリの一時ファイルに
// 対して行い、完了後にリネームするため、途中で失敗しても既存のファイルは壊れない。
//
// パラメータ:
//   - model: 保存するモデル（gobでエンコード可能な構造体）
//   - filename: 保存先のファイルパス
//
// 戻り値:
//   - error: 保存に失敗した場合の PersistenceError
//
// 使用例:
//
//	err := model.SaveModel(p, "models/model.gob")
func SaveModel(model interface{}, filename string) (err error) {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return perrors.NewPersistenceError("mkdir", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(filename)+".tmp-*")
	if err != nil {
		return perrors.NewPersistenceError("create", filename, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := SaveModelToWriter(model, tmp); err != nil {
		return perrors.NewPersistenceError("encode", filename, err)
	}
	if err := tmp.Sync(); err != nil {
		return perrors.NewPersistenceError("sync", filename, err)
	}
	if err := tmp.Close(); err != nil {
		return perrors.NewPersistenceError("close", filename, err)
	}
	if err := os.Rename(tmp.Name(), filename); err != nil {
		return perrors.NewPersistenceError("rename", filename, err)
	}
	return nil
}

// LoadModel はファイルからモデルを読み込む
//
// パラメータ:
//   - model: 読み込み先のモデル（ポインタ）
//   - filename: 読み込み元のファイルパス
//
// 戻り値:
//   - error: 読み込みに失敗した場合の PersistenceError
//
// 使用例:
//
//	var p pipeline.Pipeline
//	err := model.LoadModel(&p, "models/model.gob")
func LoadModel(model interface{}, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return perrors.NewPersistenceError("open", filename, err)
	}
	defer file.Close()

	if err := LoadModelFromReader(model, file); err != nil {
		return perrors.NewPersistenceError("decode", filename, err)
	}
	return nil
}

// SaveModelToWriter はモデルをio.Writerに保存する
func SaveModelToWriter(model interface{}, w io.Writer) error {
	encoder := gob.NewEncoder(w)
	if err := encoder.Encode(model); err != nil {
		return perrors.Wrap(err, "failed to encode model")
	}
	return nil
}

// LoadModelFromReader はio.Readerからモデルを読み込む
func LoadModelFromReader(model interface{}, r io.Reader) error {
	return perrors.SafeExecute("model.LoadModelFromReader", func() error {
		if err := gob.NewDecoder(r).Decode(model); err != nil {
			return perrors.Wrap(err, "failed to decode model")
		}
		return nil
	})
}
