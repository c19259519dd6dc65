package dynamo

import (
	"encoding/json"
	"strings"

	"github.com/spectra-gallery/spectra-playground/models"
)

const (
	userPrefix     = "USER#"
	resourcePrefix = "RESOURCE#"
	sharePrefix    = "SHARE#"

	userSK     = "PROFILE"
	resourceSK = "META"
	shareSK    = "SHARE"

	resourceSharesIndex = "GSI_ResourceShares"

	// Expired shares stay readable (and are reported as gone) until the
	// sweeper removes them; TTL only cleans up what the sweeper missed.
	shareTTLGraceSeconds = 7 * 24 * 60 * 60
)

type dynamoUser struct {
	PK           string `dynamodbav:"PK"`
	SK           string `dynamodbav:"SK"`
	Id           string `dynamodbav:"Id"`
	Username     string `dynamodbav:"Username"`
	PasswordHash string `dynamodbav:"PasswordHash"`
	Created      int64  `dynamodbav:"Created"`
}

func userKey(username string) string {
	return userPrefix + strings.ToLower(username)
}

func userToDynamo(u models.User) dynamoUser {
	return dynamoUser{
		PK:           userKey(u.Username),
		SK:           userSK,
		Id:           u.Id,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Created:      u.Created,
	}
}

func userFromDynamo(du dynamoUser) models.User {
	return models.User{
		Id:           du.Id,
		Username:     du.Username,
		PasswordHash: du.PasswordHash,
		Created:      du.Created,
	}
}

type dynamoEnvelope struct {
	Algorithm  string `dynamodbav:"Algorithm"`
	Salt       string `dynamodbav:"Salt"`
	Nonce      string `dynamodbav:"Nonce"`
	Ciphertext string `dynamodbav:"Ciphertext"`
}

type dynamoTransform struct {
	Id      string `dynamodbav:"Id"`
	Kind    string `dynamodbav:"Kind"`
	Result  string `dynamodbav:"Result"`
	Created int64  `dynamodbav:"Created"`
}

type dynamoResource struct {
	PK         string            `dynamodbav:"PK"`
	SK         string            `dynamodbav:"SK"`
	Id         string            `dynamodbav:"Id"`
	OwnerId    string            `dynamodbav:"OwnerId,omitempty"`
	Title      string            `dynamodbav:"Title"`
	Seed       string            `dynamodbav:"Seed"`
	Hash       string            `dynamodbav:"Hash"`
	Tags       []string          `dynamodbav:"Tags,omitempty"`
	Attrs      map[string]string `dynamodbav:"Attrs,omitempty"`
	Layout     string            `dynamodbav:"Layout,omitempty"`
	HTML       string            `dynamodbav:"HTML"`
	CSS        string            `dynamodbav:"CSS"`
	JavaScript string            `dynamodbav:"JavaScript"`
	Transforms []dynamoTransform `dynamodbav:"Transforms,omitempty"`
	Envelope   *dynamoEnvelope   `dynamodbav:"Envelope,omitempty"`
	Revision   int               `dynamodbav:"Revision"`
	Created    int64             `dynamodbav:"Created"`
	Updated    int64             `dynamodbav:"Updated"`
}

func resourceToDynamo(r models.Resource) dynamoResource {
	dr := dynamoResource{
		PK:         resourcePrefix + r.Id,
		SK:         resourceSK,
		Id:         r.Id,
		OwnerId:    r.OwnerId,
		Title:      r.Title,
		Seed:       r.Seed,
		Hash:       r.Hash,
		Tags:       r.Tags,
		Attrs:      r.Attrs,
		Layout:     string(r.Layout),
		HTML:       r.Content.HTML,
		CSS:        r.Content.CSS,
		JavaScript: r.Content.JavaScript,
		Revision:   r.Revision,
		Created:    r.Created,
		Updated:    r.Updated,
	}
	for _, t := range r.Transforms {
		dr.Transforms = append(dr.Transforms, dynamoTransform{
			Id:      t.Id,
			Kind:    string(t.Kind),
			Result:  string(t.Result),
			Created: t.Created,
		})
	}
	if r.Envelope != nil {
		dr.Envelope = &dynamoEnvelope{
			Algorithm:  r.Envelope.Algorithm,
			Salt:       r.Envelope.Salt,
			Nonce:      r.Envelope.Nonce,
			Ciphertext: r.Envelope.Ciphertext,
		}
	}
	return dr
}

func resourceFromDynamo(dr dynamoResource) models.Resource {
	r := models.Resource{
		Id:      dr.Id,
		OwnerId: dr.OwnerId,
		Title:   dr.Title,
		Seed:    dr.Seed,
		Hash:    dr.Hash,
		Tags:    dr.Tags,
		Attrs:   dr.Attrs,
		Content: models.Content{
			HTML:       dr.HTML,
			CSS:        dr.CSS,
			JavaScript: dr.JavaScript,
		},
		Revision: dr.Revision,
		Created:  dr.Created,
		Updated:  dr.Updated,
	}
	if dr.Layout != "" {
		r.Layout = json.RawMessage(dr.Layout)
	}
	for _, t := range dr.Transforms {
		r.Transforms = append(r.Transforms, models.Transform{
			Id:      t.Id,
			Kind:    models.TransformKind(t.Kind),
			Result:  json.RawMessage(t.Result),
			Created: t.Created,
		})
	}
	if dr.Envelope != nil {
		r.Envelope = &models.EncryptionEnvelope{
			Algorithm:  dr.Envelope.Algorithm,
			Salt:       dr.Envelope.Salt,
			Nonce:      dr.Envelope.Nonce,
			Ciphertext: dr.Envelope.Ciphertext,
		}
	}
	return r
}

type dynamoShare struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	Token      string `dynamodbav:"Token"`
	ResourceId string `dynamodbav:"ResourceId"`
	Mode       string `dynamodbav:"Mode"`
	ExpiresAt  int64  `dynamodbav:"ExpiresAt"`
	Created    int64  `dynamodbav:"Created"`
	TTL        int64  `dynamodbav:"TTL"`
}

func shareToDynamo(s models.ShareEntry) dynamoShare {
	return dynamoShare{
		PK:         sharePrefix + s.Token,
		SK:         shareSK,
		Token:      s.Token,
		ResourceId: s.ResourceId,
		Mode:       string(s.Mode),
		ExpiresAt:  s.ExpiresAt,
		Created:    s.Created,
		TTL:        s.ExpiresAt + shareTTLGraceSeconds,
	}
}

func shareFromDynamo(ds dynamoShare) models.ShareEntry {
	return models.ShareEntry{
		Token:      ds.Token,
		ResourceId: ds.ResourceId,
		Mode:       models.ShareMode(ds.Mode),
		ExpiresAt:  ds.ExpiresAt,
		Created:    ds.Created,
	}
}
