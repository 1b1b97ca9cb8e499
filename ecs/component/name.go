package component

// Name is the lookup key joints use to find their target.
type Name struct {
	Value string
}

var NameComponent = NewComponent[Name]()
