package kb

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/allocation-engine/model"
)

// inventoryDocument is the on-disk inventory format. JSON documents are
// accepted because they parse as YAML.
type inventoryDocument struct {
	Sites         []siteDocument        `yaml:"sites" validate:"dive"`
	Satellites    []satelliteDocument   `yaml:"satellites" validate:"dive"`
	Opportunities []opportunityDocument `yaml:"opportunities" validate:"dive"`
}

type siteDocument struct {
	ID        string  `yaml:"id" validate:"required"`
	Name      string  `yaml:"name"`
	Lat       float64 `yaml:"lat" validate:"gte=-90,lte=90"`
	Lon       float64 `yaml:"lon" validate:"gte=-180,lte=180"`
	Capacity  int     `yaml:"capacity" validate:"gte=0"`
	Allocated int     `yaml:"allocated" validate:"gte=0"`
}

type satelliteDocument struct {
	ID          string `yaml:"id" validate:"required"`
	Name        string `yaml:"name"`
	Function    string `yaml:"function"`
	Orbit       string `yaml:"orbit" validate:"omitempty,oneof=LEO MEO GEO HEO"`
	Capacity    int    `yaml:"capacity" validate:"gte=0"`
	CurrentLoad int    `yaml:"currentLoad" validate:"gte=0"`
	TLE1        string `yaml:"tle1"`
	TLE2        string `yaml:"tle2" validate:"required_with=TLE1"`
}

type opportunityDocument struct {
	ID          string   `yaml:"id" validate:"required"`
	Name        string   `yaml:"name"`
	SatelliteID string   `yaml:"satelliteId" validate:"required"`
	SiteIDs     []string `yaml:"siteIds" validate:"dive,required"`
	Priority    string   `yaml:"priority" validate:"omitempty,oneof=critical high medium low"`
	MatchStatus string   `yaml:"matchStatus" validate:"omitempty,oneof=baseline suboptimal unmatched"`
	Conflicts   []string `yaml:"conflicts"`
	TotalPasses int      `yaml:"totalPasses" validate:"gte=0"`
}

// InventorySummary reports what LoadInventory added.
type InventorySummary struct {
	Sites         int
	Satellites    int
	Opportunities int
}

var inventoryValidator = validator.New(validator.WithRequiredStructEnabled())

// LoadInventory parses an inventory document from r, validates it and adds
// its contents to kb. Sites and satellites are added before the
// opportunities that reference them.
//
// An empty priority is allowed: it is an operator finding reported by
// validation, not a malformed document.
func LoadInventory(kb *KnowledgeBase, r io.Reader) (InventorySummary, error) {
	var summary InventorySummary

	data, err := io.ReadAll(r)
	if err != nil {
		return summary, fmt.Errorf("read inventory: %w", err)
	}
	var doc inventoryDocument
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return summary, fmt.Errorf("%w: decode: %v", ErrInvalidInventory, err)
	}
	if err := inventoryValidator.Struct(doc); err != nil {
		return summary, fmt.Errorf("%w: %s", ErrInvalidInventory, describeValidation(err))
	}

	for _, s := range doc.Sites {
		site := model.Site{
			ID:        s.ID,
			Name:      s.Name,
			Location:  model.Location{Lat: s.Lat, Lon: s.Lon},
			Capacity:  s.Capacity,
			Allocated: s.Allocated,
		}
		if err := kb.AddSite(site); err != nil {
			return summary, err
		}
		summary.Sites++
	}
	for _, s := range doc.Satellites {
		sat := model.Satellite{
			ID:          s.ID,
			Name:        s.Name,
			Function:    s.Function,
			Orbit:       model.OrbitClass(s.Orbit),
			Capacity:    s.Capacity,
			CurrentLoad: s.CurrentLoad,
			TLE1:        s.TLE1,
			TLE2:        s.TLE2,
		}
		if err := kb.AddSatellite(sat); err != nil {
			return summary, err
		}
		summary.Satellites++
	}
	for _, o := range doc.Opportunities {
		opp := model.CollectionOpportunity{
			ID:          o.ID,
			Name:        o.Name,
			Priority:    model.Priority(o.Priority),
			MatchStatus: model.MatchStatus(o.MatchStatus),
			Conflicts:   o.Conflicts,
			TotalPasses: o.TotalPasses,
		}
		if err := kb.AddOpportunity(opp, o.SatelliteID, o.SiteIDs); err != nil {
			return summary, err
		}
		summary.Opportunities++
	}
	return summary, nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
