// Package seed loads reference data (regions, districts, roles) from a
// YAML file into the store. Applying the same file twice is a no-op.
package seed

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"gridwatch/internal/logger"
	"gridwatch/internal/model"
	"gridwatch/internal/query"
	"gridwatch/internal/store"
)

// namespace for ids derived from names.
var namespace = uuid.MustParse("6f1c1c52-6a4c-4d64-9c55-2f0b5f5f6a10")

type File struct {
	Regions []Region `yaml:"regions"`
	Roles   []Role   `yaml:"roles"`
}

type Role struct {
	ID               string   `yaml:"id"`
	Name             string   `yaml:"name"`
	Description      string   `yaml:"description"`
	AccessLevel      string   `yaml:"accessLevel"`
	AllowedRegions   []string `yaml:"allowedRegions"`
	AllowedDistricts []string `yaml:"allowedDistricts"`
}

type Region struct {
	ID        string     `yaml:"id"`
	Name      string     `yaml:"name"`
	Districts []District `yaml:"districts"`
}

type District struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Load reads a seed file from disk.
func Load(path string) (File, error) {
	f, err := os.Open(path)
	if err != nil {
		return File{}, err
	}
	defer f.Close()
	return Parse(f)
}

func Parse(r io.Reader) (File, error) {
	var out File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&out); err != nil && err != io.EOF {
		return File{}, fmt.Errorf("decode seed: %w", err)
	}
	return out, nil
}

// ID derives a stable id for a named entity.
func ID(kind, name string) string {
	return uuid.NewSHA1(namespace, []byte(kind+":"+name)).String()
}

// Apply writes the file's contents, validating every entry first.
func Apply(ctx context.Context, s store.Store, v *validator.Validate, f File) error {
	var regions, districts, roles []model.Record
	for _, r := range f.Regions {
		region := model.Region{ID: r.ID, Name: r.Name}
		if region.ID == "" {
			region.ID = ID("region", r.Name)
		}
		if err := v.Struct(region); err != nil {
			return fmt.Errorf("region %q: %w", r.Name, err)
		}
		rec, err := model.Encode(region)
		if err != nil {
			return err
		}
		regions = append(regions, rec)
		for _, d := range r.Districts {
			district := model.District{ID: d.ID, Name: d.Name, RegionID: region.ID}
			if district.ID == "" {
				district.ID = ID("district", d.Name)
			}
			if err := v.Struct(district); err != nil {
				return fmt.Errorf("district %q: %w", d.Name, err)
			}
			rec, err := model.Encode(district)
			if err != nil {
				return err
			}
			districts = append(districts, rec)
		}
	}
	for _, r := range f.Roles {
		role := model.Role(r)
		if role.ID == "" {
			role.ID = ID("role", role.Name)
		}
		if err := v.Struct(role); err != nil {
			return fmt.Errorf("role %q: %w", role.Name, err)
		}
		if role.AccessLevel == model.AccessRegional && len(role.AllowedRegions) == 0 {
			return fmt.Errorf("role %q: regional roles need at least one allowed region", role.Name)
		}
		rec, err := model.Encode(role)
		if err != nil {
			return err
		}
		roles = append(roles, rec)
	}

	for _, batch := range []struct {
		collection string
		records    []model.Record
	}{
		{query.Regions, regions},
		{query.Districts, districts},
		{query.Roles, roles},
	} {
		for _, rec := range batch.records {
			if _, err := s.Put(ctx, batch.collection, rec); err != nil {
				return fmt.Errorf("seed %s: %w", batch.collection, err)
			}
		}
	}
	logger.Infof(ctx, "seeded %d regions, %d districts, %d roles", len(regions), len(districts), len(roles))
	return nil
}
