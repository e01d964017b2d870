package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"gridwatch/internal/model"
	"gridwatch/internal/query"
)

func (s *Server) validateStruct(v any) error {
	err := s.Validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%v: %w", err, query.ErrValidation)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s is %s", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("%s: %w", strings.Join(msgs, "; "), query.ErrValidation)
}

// validateRecord checks records of typed collections against their model.
func (s *Server) validateRecord(ctx context.Context, collection string, rec model.Record) error {
	switch collection {
	case query.Users:
		var u model.User
		return s.decodeAndValidate(rec, &u)
	case query.Regions:
		var reg model.Region
		return s.decodeAndValidate(rec, &reg)
	case query.Districts:
		var d model.District
		if err := s.decodeAndValidate(rec, &d); err != nil {
			return err
		}
		if _, err := s.Directory.Region(ctx, d.RegionID); err != nil {
			return fmt.Errorf("regionId %q: %v: %w", d.RegionID, err, query.ErrValidation)
		}
	case query.Roles:
		var role model.Role
		if err := s.decodeAndValidate(rec, &role); err != nil {
			return err
		}
		if role.AccessLevel == model.AccessRegional && len(role.AllowedRegions) == 0 {
			return fmt.Errorf("regional roles need at least one allowed region: %w", query.ErrValidation)
		}
	}
	return nil
}

func (s *Server) decodeAndValidate(rec model.Record, out any) error {
	if err := model.Decode(rec, out); err != nil {
		return fmt.Errorf("%v: %w", err, query.ErrValidation)
	}
	return s.validateStruct(out)
}
