package authz

import "strings"

// Scope narrows a data permission to resources by ownership.
type Scope string

const (
	ScopeNone Scope = ""
	ScopeOwn  Scope = "own"
	ScopeTeam Scope = "team"
	ScopeAny  Scope = "any"
)

// Category groups catalog entries for administrative display.
type Category string

const (
	CategoryTools    Category = "tools"
	CategoryData     Category = "data"
	CategoryAdmin    Category = "admin"
	CategorySettings Category = "settings"
	CategorySearch   Category = "search"
)

// Permission is a fine-grained capability. Identity is the dotted ID;
// the catalog never mutates at runtime.
type Permission struct {
	ID          string
	Category    Category
	Module      string
	Action      string
	Scope       Scope
	Description string
}

const (
	PermDistanceUse       = "gis.distance.use"
	PermPolygonUse        = "gis.polygon.use"
	PermCircleUse         = "gis.circle.use"
	PermElevationUse      = "gis.elevation.use"
	PermInfrastructureUse = "gis.infrastructure.use"
	PermSectorUse         = "gis.sector.use"

	PermMeasurementCreate  = "gis.measurement.create"
	PermMeasurementViewOwn = "gis.measurement.view.own"
	PermMeasurementViewAny = "gis.measurement.view.any"
	PermMeasurementEditOwn = "gis.measurement.edit.own"
	PermMeasurementEditAny = "gis.measurement.edit.any"

	PermPolygonCreate     = "gis.polygon.create"
	PermPolygonEditOwn    = "gis.polygon.edit.own"
	PermPolygonEditTeam   = "gis.polygon.edit.team"
	PermPolygonEditAny    = "gis.polygon.edit.any"
	PermPolygonDeleteOwn  = "gis.polygon.delete.own"
	PermPolygonDeleteAny  = "gis.polygon.delete.any"

	PermInfrastructureCreate     = "gis.infrastructure.create"
	PermInfrastructureEditOwn    = "gis.infrastructure.edit.own"
	PermInfrastructureEditTeam   = "gis.infrastructure.edit.team"
	PermInfrastructureEditAny    = "gis.infrastructure.edit.any"
	PermInfrastructureDeleteOwn  = "gis.infrastructure.delete.own"
	PermInfrastructureDeleteAny  = "gis.infrastructure.delete.any"

	PermManageUsers    = "admin.users.manage"
	PermManageGroups   = "admin.groups.manage"
	PermManageRegions  = "admin.regions.manage"
	PermManageGrants   = "admin.grants.manage"
	PermReviewRequests = "admin.requests.review"

	PermSettingsManage = "settings.manage"

	PermSearchUse    = "search.use"
	PermSearchGlobal = "search.global"
)

// Catalog is the immutable permission table shipped with the system.
// Adding a permission means extending this table and, optionally, a
// role-default set; resolution code never changes for new entries.
var Catalog = []Permission{
	{ID: PermDistanceUse, Category: CategoryTools, Description: "Use the distance measurement tool"},
	{ID: PermPolygonUse, Category: CategoryTools, Description: "Use the polygon drawing tool"},
	{ID: PermCircleUse, Category: CategoryTools, Description: "Use the circle drawing tool"},
	{ID: PermElevationUse, Category: CategoryTools, Description: "Use the elevation profile tool"},
	{ID: PermInfrastructureUse, Category: CategoryTools, Description: "Use the infrastructure management tool"},
	{ID: PermSectorUse, Category: CategoryTools, Description: "Use the sector RF coverage tool"},

	{ID: PermMeasurementCreate, Category: CategoryData, Description: "Place measurement points"},
	{ID: PermMeasurementViewOwn, Category: CategoryData, Description: "View own measurements"},
	{ID: PermMeasurementViewAny, Category: CategoryData, Description: "View any measurement"},
	{ID: PermMeasurementEditOwn, Category: CategoryData, Description: "Edit own measurements"},
	{ID: PermMeasurementEditAny, Category: CategoryData, Description: "Edit any measurement"},

	{ID: PermPolygonCreate, Category: CategoryData, Description: "Create polygons"},
	{ID: PermPolygonEditOwn, Category: CategoryData, Description: "Edit own polygons"},
	{ID: PermPolygonEditTeam, Category: CategoryData, Description: "Edit polygons owned by the same team"},
	{ID: PermPolygonEditAny, Category: CategoryData, Description: "Edit any polygon"},
	{ID: PermPolygonDeleteOwn, Category: CategoryData, Description: "Delete own polygons"},
	{ID: PermPolygonDeleteAny, Category: CategoryData, Description: "Delete any polygon"},

	{ID: PermInfrastructureCreate, Category: CategoryData, Description: "Create infrastructure records"},
	{ID: PermInfrastructureEditOwn, Category: CategoryData, Description: "Edit own infrastructure records"},
	{ID: PermInfrastructureEditTeam, Category: CategoryData, Description: "Edit infrastructure owned by the same team"},
	{ID: PermInfrastructureEditAny, Category: CategoryData, Description: "Edit any infrastructure record"},
	{ID: PermInfrastructureDeleteOwn, Category: CategoryData, Description: "Delete own infrastructure records"},
	{ID: PermInfrastructureDeleteAny, Category: CategoryData, Description: "Delete any infrastructure record"},

	{ID: PermManageUsers, Category: CategoryAdmin, Description: "Manage user accounts"},
	{ID: PermManageGroups, Category: CategoryAdmin, Description: "Manage groups and memberships"},
	{ID: PermManageRegions, Category: CategoryAdmin, Description: "Manage region assignments"},
	{ID: PermManageGrants, Category: CategoryAdmin, Description: "Issue and revoke temporary access grants"},
	{ID: PermReviewRequests, Category: CategoryAdmin, Description: "Review region access requests"},

	{ID: PermSettingsManage, Category: CategorySettings, Description: "Change application settings"},

	{ID: PermSearchUse, Category: CategorySearch, Description: "Search within assigned regions"},
	{ID: PermSearchGlobal, Category: CategorySearch, Description: "Search across all regions"},
}

var catalogIndex = buildCatalogIndex()

func buildCatalogIndex() map[string]Permission {
	idx := make(map[string]Permission, len(Catalog))
	for i, p := range Catalog {
		parts := strings.Split(p.ID, ".")
		if len(parts) >= 2 {
			p.Module = parts[0]
			p.Action = strings.Join(parts[1:], ".")
		}
		p.Scope = scopeOf(p.ID)
		Catalog[i] = p
		idx[p.ID] = p
	}
	return idx
}

// PermissionByID returns the catalog entry for a dotted permission id.
func PermissionByID(id string) (Permission, bool) {
	p, ok := catalogIndex[id]
	return p, ok
}

// scopeOf derives the ownership scope from the id suffix, so that
// permissions unknown to the catalog still scope-check consistently.
func scopeOf(id string) Scope {
	switch {
	case strings.HasSuffix(id, ".own"):
		return ScopeOwn
	case strings.HasSuffix(id, ".team"):
		return ScopeTeam
	case strings.HasSuffix(id, ".any"):
		return ScopeAny
	default:
		return ScopeNone
	}
}
