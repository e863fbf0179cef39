package store

import (
	"context"

	"gorm.io/gorm"

	"medgas-backend/internal/model"
)

// OrganizationOf resolves the organization that owns any entity, for authorization.
func (s *Store) OrganizationOf(ctx context.Context, entity, id string) (*model.Organization, error) {
	db := s.db.WithContext(ctx)
	orgID, err := organizationIDOf(db, entity, id)
	if err != nil {
		return nil, err
	}
	return first[model.Organization](db, EntityOrganization, orgID)
}

func organizationIDOf(db *gorm.DB, entity, id string) (string, error) {
	switch entity {
	case EntityOrganization:
		return id, nil
	case EntitySource, EntityValve, EntityFitting:
		el, err := findElement(db, model.NodeType(entity), id)
		if err != nil {
			return "", err
		}
		org, _ := el.Owner()
		return org, nil
	}
	siteID, err := siteIDOf(db, entity, id)
	if err != nil {
		return "", err
	}
	site, err := first[model.Site](db, EntitySite, siteID)
	if err != nil {
		return "", err
	}
	return site.OrganizationID, nil
}

// siteIDOf walks up from an entity to its site.
func siteIDOf(db *gorm.DB, entity, id string) (string, error) {
	switch entity {
	case EntitySite:
		return id, nil
	case EntityBuilding:
		b, err := first[model.Building](db, entity, id)
		if err != nil {
			return "", err
		}
		return b.SiteID, nil
	case EntityFloor:
		f, err := first[model.Floor](db, entity, id)
		if err != nil {
			return "", err
		}
		return siteIDOf(db, EntityBuilding, f.BuildingID)
	case EntityZone:
		z, err := first[model.Zone](db, entity, id)
		if err != nil {
			return "", err
		}
		return siteIDOf(db, EntityFloor, z.FloorID)
	case EntityNode:
		n, err := first[model.Node](db, entity, id)
		if err != nil {
			return "", err
		}
		return n.SiteID, nil
	case EntityConnection:
		c, err := first[model.Connection](db, entity, id)
		if err != nil {
			return "", err
		}
		return c.SiteID, nil
	case EntityLayout:
		l, err := first[model.Layout](db, entity, id)
		if err != nil {
			return "", err
		}
		return l.SiteID, nil
	case EntityAnnotation:
		a, err := first[model.Annotation](db, entity, id)
		if err != nil {
			return "", err
		}
		return siteIDOf(db, EntityLayout, a.LayoutID)
	case EntityMedia:
		m, err := first[model.Media](db, entity, id)
		if err != nil {
			return "", err
		}
		return m.SiteID, nil
	}
	return "", invalid(entity, "unknown entity %q", entity)
}
