package model

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	perrors "github.com/letstravel/prospensity/pkg/errors"
)

// ArtifactMetadata はアーティファクトに付随するメタデータ（JSONサイドファイル用）
type ArtifactMetadata struct {
	// RunID は学習実行の識別子
	RunID string `json:"run_id"`

	// ModelType はモデルの種類（LGBMClassifier等）
	ModelType string `json:"model_type"`

	// Version はアーティファクト形式のバージョン（互換性チェック用）
	Version string `json:"version"`

	// CreatedAt は学習完了時刻
	CreatedAt time.Time `json:"created_at"`

	// Features は変換後の特徴量の名前
	Features []string `json:"features,omitempty"`

	// Hyperparameters はモデルのハイパーパラメータ
	Hyperparameters map[string]interface{} `json:"hyperparameters"`

	// Metrics は評価指標（accuracy, f1 等）
	Metrics map[string]float64 `json:"metrics,omitempty"`

	// Metadata は追加のメタデータ（行数、ソース等）
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// IsFitted はモデルが学習済みかどうか
	IsFitted bool `json:"is_fitted"`
}

// ToJSON はArtifactMetadataをJSON形式にシリアライズ
func (am *ArtifactMetadata) ToJSON() ([]byte, error) {
	return json.MarshalIndent(am, "", "  ")
}

// FromJSON はJSON形式からArtifactMetadataをデシリアライズ
func (am *ArtifactMetadata) FromJSON(data []byte) error {
	return json.Unmarshal(data, am)
}

// Validate はArtifactMetadataの妥当性を検証
func (am *ArtifactMetadata) Validate() error {
	if am.ModelType == "" {
		return fmt.Errorf("model_type is required")
	}
	if am.Version == "" {
		return fmt.Errorf("version is required")
	}
	if am.IsFitted && len(am.Features) == 0 {
		return fmt.Errorf("fitted model must list its features")
	}
	return nil
}

// WriteFile はメタデータをJSONファイルとして保存する
func (am *ArtifactMetadata) WriteFile(path string) error {
	if err := am.Validate(); err != nil {
		return perrors.NewValidationError("metadata", err.Error(), am.ModelType)
	}
	data, err := am.ToJSON()
	if err != nil {
		return perrors.NewPersistenceError("encode", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return perrors.NewPersistenceError("write", path, err)
	}
	return nil
}

// ReadMetadata はJSONファイルからメタデータを読み込む
func ReadMetadata(path string) (*ArtifactMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, perrors.NewPersistenceError("read", path, err)
	}
	am := &ArtifactMetadata{}
	if err := am.FromJSON(data); err != nil {
		return nil, perrors.NewPersistenceError("decode", path, err)
	}
	return am, nil
}
