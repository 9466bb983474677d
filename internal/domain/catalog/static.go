package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/drfirst/go-intake/internal/domain/money"
)

//go:embed seed.yaml
var defaultSeed []byte

// SeedYAML mirrors the catalog seed file layout.
type SeedYAML struct {
	Products   []ProductYAML  `yaml:"products"`
	Pharmacies []PharmacyYAML `yaml:"pharmacies"`
}

// ProductYAML is a product entry in the seed file. Prices are in euros.
type ProductYAML struct {
	ID             string   `yaml:"id"`
	Name           string   `yaml:"name"`
	Kind           string   `yaml:"kind"`
	THC            float64  `yaml:"thc"`
	CBD            float64  `yaml:"cbd"`
	PricePerGram   float64  `yaml:"price_per_gram,omitempty"`
	PricePerBottle float64  `yaml:"price_per_bottle,omitempty"`
	BottleSizeML   float64  `yaml:"bottle_size_ml,omitempty"`
	Description    string   `yaml:"description"`
	Pharmacies     []string `yaml:"pharmacies,omitempty"`
}

// PharmacyYAML is a pharmacy entry in the seed file.
type PharmacyYAML struct {
	ID               string   `yaml:"id"`
	Name             string   `yaml:"name"`
	Street           string   `yaml:"street"`
	PostalCode       string   `yaml:"postal_code"`
	City             string   `yaml:"city"`
	Phone            string   `yaml:"phone,omitempty"`
	Rating           float64  `yaml:"rating"`
	DeliveryEstimate string   `yaml:"delivery_estimate"`
	Products         []string `yaml:"products,omitempty"`
}

// StaticRepository serves a catalog decoded from YAML.
type StaticRepository struct {
	data []byte
}

// NewStaticRepository returns a repository backed by the embedded seed catalog.
func NewStaticRepository() *StaticRepository {
	return &StaticRepository{data: defaultSeed}
}

// NewStaticRepositoryFromFile reads a seed file from disk.
func NewStaticRepositoryFromFile(path string) (*StaticRepository, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return &StaticRepository{data: data}, nil
}

// NewStaticRepositoryFromBytes decodes seed YAML held in memory.
func NewStaticRepositoryFromBytes(data []byte) *StaticRepository {
	return &StaticRepository{data: data}
}

// Load decodes and validates the seed.
func (r *StaticRepository) Load(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var seed SeedYAML
	if err := yaml.Unmarshal(r.data, &seed); err != nil {
		return nil, fmt.Errorf("decode catalog seed: %w", err)
	}
	return seed.Snapshot()
}

// Snapshot converts the seed into a validated snapshot.
func (s SeedYAML) Snapshot() (*Snapshot, error) {
	products := make([]Product, 0, len(s.Products))
	for _, p := range s.Products {
		products = append(products, Product{
			ID:             p.ID,
			Name:           p.Name,
			Kind:           Kind(p.Kind),
			THCPercent:     p.THC,
			CBDPercent:     p.CBD,
			PricePerGram:   money.FromFloat(p.PricePerGram),
			PricePerBottle: money.FromFloat(p.PricePerBottle),
			BottleSizeML:   p.BottleSizeML,
			Description:    p.Description,
			PharmacyIDs:    p.Pharmacies,
		})
	}
	pharmacies := make([]Pharmacy, 0, len(s.Pharmacies))
	for _, ph := range s.Pharmacies {
		pharmacies = append(pharmacies, Pharmacy{
			ID:               ph.ID,
			Name:             ph.Name,
			Street:           ph.Street,
			PostalCode:       ph.PostalCode,
			City:             ph.City,
			Phone:            ph.Phone,
			Rating:           ph.Rating,
			DeliveryEstimate: ph.DeliveryEstimate,
			ProductIDs:       ph.Products,
		})
	}
	snap, err := NewSnapshot(products, pharmacies)
	if err != nil {
		return nil, fmt.Errorf("build catalog: %w", err)
	}
	return snap, nil
}
