package mgmtapi

// RoutingKeyDiff computes which routing keys must be bound and unbound
// to make a queue's existing bindings to exchange match desired.
func RoutingKeyDiff(existing []Binding, exchange string, desired []string) (toBind, toUnbind []string) {
	current := make(map[string]bool)
	for _, b := range existing {
		if b.Source != exchange || b.DestinationType != "queue" {
			continue
		}
		current[b.RoutingKey] = true
	}

	want := make(map[string]bool, len(desired))
	for _, rk := range desired {
		want[rk] = true
		if !current[rk] {
			toBind = append(toBind, rk)
		}
	}
	for rk := range current {
		if !want[rk] {
			toUnbind = append(toUnbind, rk)
		}
	}
	return toBind, toUnbind
}
