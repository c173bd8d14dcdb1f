// Package ingest documents the ERP webhook boundary without implementing
// it. Catalog sync, order accounting, and org/member provisioning are owned
// by the 1C integration outside this service; the core only reads the
// relational tables those webhooks populate (products, categories,
// organizations, org_members, org_product_stats). The three routes below
// are recorded as typed placeholders so the expected request shapes and
// auth contract stay discoverable from the code, not just from config.
package ingest

// catalogPayload is the body of POST /integrations/1c/catalog. Accepted in
// either shape: a flat {items:[...]} list, or a {categories, products,
// price_type} split payload distinguishing new categories from products.
// Token-authenticated via Authorization: Bearer, X-1C-Token, X-Token, or a
// ?token= query parameter — any one of the four satisfies the check.
type catalogPayload struct {
	Items      []catalogItem `json:"items,omitempty"`
	Categories []string      `json:"categories,omitempty"`
	Products   []catalogItem `json:"products,omitempty"`
	PriceType  string        `json:"price_type,omitempty"`
}

type catalogItem struct {
	SKU         string  `json:"sku"`
	TitleRu     string  `json:"title_ru"`
	CategoryID  *int64  `json:"category_id,omitempty"`
	Price       float64 `json:"price"`
	StockQty    int     `json:"stock_qty"`
	Attributes  string  `json:"attributes,omitempty"`
}

// ordersPayload is the body of POST /integrations/1c/orders. Each line
// upserts one (org_id, product_id) row in org_product_stats: incrementing
// orders_count and qty_sum, and overwriting last_order_at/last_qty/last_unit.
type ordersPayload struct {
	OrgID int64       `json:"org_id"`
	Lines []orderLine `json:"lines"`
}

type orderLine struct {
	ProductID int64   `json:"product_id"`
	Qty       float64 `json:"qty"`
	Unit      string  `json:"unit"`
}

// orgMembersPayload is the body of POST /integrations/1c/orgs/members.
// Upserts Organization, User, and OrgMember rows, keyed on the ERP's own
// organization and user identifiers.
type orgMembersPayload struct {
	ExternalOrgID string         `json:"external_org_id"`
	OrgName       string         `json:"org_name"`
	Members       []memberRecord `json:"members"`
}

type memberRecord struct {
	ExternalUserID string `json:"external_user_id"`
	TgID           string `json:"tg_id,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Role           string `json:"role,omitempty"`
}
