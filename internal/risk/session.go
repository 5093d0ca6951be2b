package risk

// CorrelateSessions groups sign-ins by correlation id and computes the
// three anomaly flags for every group with at least two members. The flags
// are a group-level property: once computed they are written identically
// to every member. Sign-ins without a correlation id keep all flags false.
func CorrelateSessions(facts []*SignInFact) []SessionGroup {
	byID := make(map[string][]*SignInFact)
	order := make([]string, 0)
	for _, f := range facts {
		if f.CorrelationID == "" {
			continue
		}
		if _, seen := byID[f.CorrelationID]; !seen {
			order = append(order, f.CorrelationID)
		}
		byID[f.CorrelationID] = append(byID[f.CorrelationID], f)
	}

	groups := make([]SessionGroup, 0, len(order))
	for _, id := range order {
		members := byID[id]
		group := SessionGroup{CorrelationID: id, Members: members}
		if len(members) >= 2 {
			group.Flags = sessionFlags(members)
		}
		for _, m := range members {
			m.Session = group.Flags
		}
		groups = append(groups, group)
	}
	return groups
}

func sessionFlags(members []*SignInFact) SessionFlags {
	ips := make(map[string]struct{})
	countries := make(map[string]struct{})
	devices := make(map[string]struct{})

	for _, m := range members {
		if m.IPAddress != "" {
			ips[m.IPAddress] = struct{}{}
		}
		if m.Location != nil && m.Location.CountryCode != "" {
			countries[m.Location.CountryCode] = struct{}{}
		}
		if m.Device.DeviceID != "" {
			devices[m.Device.DeviceID] = struct{}{}
		}
	}

	return SessionFlags{
		IPChanged:      len(ips) > 1,
		CountryChanged: len(countries) > 1,
		DeviceChanged:  len(devices) > 1,
	}
}
