package objcache

// RemovedCallback is invoked after an entry left the cache.
type RemovedCallback func(args *RemovedArguments)

// UpdateCallback is invoked when an entry is about to leave the cache because it expired or one of its monitors
// changed. Setting UpdatedItem on the arguments puts a replacement entry in place of the removed one.
type UpdateCallback func(args *UpdateArguments)

// RemovedArguments describes an entry that was removed from a cache.
type RemovedArguments struct {
	Source ObjectCache // The cache that held the entry.
	Reason RemovedReason
	Item   *Item // The removed entry.
}

// NewRemovedArguments is the constructor for RemovedArguments.
func NewRemovedArguments(source ObjectCache, reason RemovedReason, item *Item) (*RemovedArguments, error) {
	if source == nil {
		return nil, invalidArgument("expected a non-nil source cache")
	}
	if item == nil {
		return nil, invalidArgument("expected a non-nil cache item")
	}
	return &RemovedArguments{Source: source, Reason: reason, Item: item}, nil
}

// UpdateArguments describes an entry that is about to be removed, and carries the optional replacement.
type UpdateArguments struct {
	Source ObjectCache // The cache that holds the entry.
	Reason RemovedReason
	Key    string
	Region string
	// UpdatedItem replaces the removed entry when set by the callback.
	UpdatedItem *Item
	// UpdatedPolicy is the policy of UpdatedItem; nil means NewPolicy().
	UpdatedPolicy *Policy
}

// NewUpdateArguments is the constructor for UpdateArguments.
func NewUpdateArguments(source ObjectCache, reason RemovedReason, key, region string) (*UpdateArguments, error) {
	if source == nil {
		return nil, invalidArgument("expected a non-nil source cache")
	}
	if key == "" {
		return nil, invalidArgument("expected a non-empty key")
	}
	return &UpdateArguments{Source: source, Reason: reason, Key: key, Region: region}, nil
}
