package lookup

// Predicate filters identity records.
type Predicate interface {
	predicateNode()
}

// Active matches records whose status is active.
type Active struct{}

func (Active) predicateNode() {}

// EmailIs matches records holding Email as their primary email or in their
// linked email set.
type EmailIs struct {
	Email string
}

func (EmailIs) predicateNode() {}

// PhoneIs matches records holding Phone as their primary phone or in their
// linked phone set.
type PhoneIs struct {
	Phone string
}

func (PhoneIs) predicateNode() {}

// NameContainsAny matches records whose name contains at least one key,
// case-insensitively.
type NameContainsAny struct {
	Keys []string
}

func (NameContainsAny) predicateNode() {}

// IDIn matches records whose id is in IDs.
type IDIn struct {
	IDs []string
}

func (IDIn) predicateNode() {}

// GroupIs matches records in the given group, whatever their status.
type GroupIs struct {
	GroupID string
}

func (GroupIs) predicateNode() {}

// IDAfter matches records whose id sorts strictly after ID in binary
// order. It is the cursor of a paged scan.
type IDAfter struct {
	ID string
}

func (IDAfter) predicateNode() {}

// And matches when every predicate matches.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Order selects the deterministic ordering of results.
type Order int

const (
	// OrderByID sorts by id ascending.
	OrderByID Order = iota
	// OrderMasterFirst puts the group master first, then sorts by id.
	OrderMasterFirst
)

// Select is a read of identity records.
//
//	Select{
//	  Filter: And{Predicates: []Predicate{Active{}, EmailIs{Email: "a@x.com"}}},
//	}
//
// compiles to
//
//	SELECT ... FROM identities
//	WHERE account_status = ? AND (primary_email = ? OR id IN (...))
//	ORDER BY id COLLATE BINARY ASC
type Select struct {
	Filter Predicate
	Order  Order
	// Limit caps the number of rows; 0 means no limit.
	Limit int
}

// ByEmail returns active records holding email.
func ByEmail(email string) Select {
	return Select{Filter: And{Predicates: []Predicate{Active{}, EmailIs{Email: email}}}}
}

// ByPhone returns active records holding phone.
func ByPhone(phone string) Select {
	return Select{Filter: And{Predicates: []Predicate{Active{}, PhoneIs{Phone: phone}}}}
}

// ByName returns one page of active records whose name contains any key:
// up to limit records with ids after the cursor after. An empty cursor
// starts at the first id.
func ByName(keys []string, after string, limit int) Select {
	preds := []Predicate{Active{}, NameContainsAny{Keys: keys}}
	if after != "" {
		preds = append(preds, IDAfter{ID: after})
	}
	return Select{
		Filter: And{Predicates: preds},
		Limit:  limit,
	}
}

// ByIDs returns the records with the given ids, whatever their status.
func ByIDs(ids []string) Select {
	return Select{Filter: IDIn{IDs: ids}}
}

// ByGroup returns every member of a group, master first.
func ByGroup(groupID string) Select {
	return Select{Filter: GroupIs{GroupID: groupID}, Order: OrderMasterFirst}
}
