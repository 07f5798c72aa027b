package enums

// ListingType maps to the listing_type enum in Postgres.
type ListingType string

const (
	ListingTypeFixed        ListingType = "fixed"
	ListingTypeAscendingBid ListingType = "ascending-bid"
	ListingTypeDutchAuction ListingType = "dutch-auction"
)

var validListingTypes = []ListingType{
	ListingTypeFixed,
	ListingTypeAscendingBid,
	ListingTypeDutchAuction,
}

func (t ListingType) IsValid() bool { return contains(validListingTypes, t) }

// AcceptsBids reports whether bids (as opposed to offers) are allowed.
func (t ListingType) AcceptsBids() bool {
	return t == ListingTypeAscendingBid || t == ListingTypeDutchAuction
}

// AcceptsOffers reports whether negotiated offers are allowed.
func (t ListingType) AcceptsOffers() bool {
	return t == ListingTypeFixed || t == ListingTypeAscendingBid
}

func ParseListingType(value string) (ListingType, error) {
	return parse(validListingTypes, "listing type", value)
}

// ListingStatus maps to the listing_status enum in Postgres.
type ListingStatus string

const (
	ListingStatusActive ListingStatus = "active"
	ListingStatusEnded  ListingStatus = "ended"
	ListingStatusSold   ListingStatus = "sold"
)

var validListingStatuses = []ListingStatus{
	ListingStatusActive,
	ListingStatusEnded,
	ListingStatusSold,
}

func (s ListingStatus) IsValid() bool { return contains(validListingStatuses, s) }
