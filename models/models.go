package models

import "encoding/json"

type User struct {
	Id           string
	Username     string
	PasswordHash string
	Created      int64
}

// Identity is what a verified bearer token resolves to.
type Identity struct {
	Id       string `json:"id"`
	Username string `json:"username"`
}

// Content holds the editable fields of a resource. It is the payload that gets
// sealed when a resource is encrypted.
type Content struct {
	HTML       string `json:"html"`
	CSS        string `json:"css"`
	JavaScript string `json:"javascript"`
}

func (c Content) IsEmpty() bool {
	return c.HTML == "" && c.CSS == "" && c.JavaScript == ""
}

type EncryptionEnvelope struct {
	Algorithm  string `json:"algorithm"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

type TransformKind string

const (
	TransformNeuralMap TransformKind = "neuralmap"
	TransformNode      TransformKind = "node"
	TransformLink      TransformKind = "link"
)

type Transform struct {
	Id      string          `json:"id"`
	Kind    TransformKind   `json:"kind"`
	Result  json.RawMessage `json:"result"`
	Created int64           `json:"created"`
}

type Resource struct {
	Id         string
	OwnerId    string
	Title      string
	Seed       string
	Hash       string
	Tags       []string
	Attrs      map[string]string
	Layout     json.RawMessage
	Content    Content
	Transforms []Transform
	Envelope   *EncryptionEnvelope
	Revision   int
	Created    int64
	Updated    int64
}

func (r Resource) IsEncrypted() bool {
	return r.Envelope != nil
}

type ShareMode string

const (
	ShareViewer ShareMode = "viewer"
	ShareEditor ShareMode = "editor"
)

type ShareEntry struct {
	Token      string    `json:"token"`
	ResourceId string    `json:"resourceId"`
	Mode       ShareMode `json:"mode"`
	ExpiresAt  int64     `json:"expiresAt"`
	Created    int64     `json:"created"`
}

// Expired reports whether the entry is no longer valid at unix time now.
func (s ShareEntry) Expired(now int64) bool {
	return now > s.ExpiresAt
}
