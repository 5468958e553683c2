package medication

// Merge collapses mentions that normalize to the same key. Output order is
// the order in which each key first appears. The first mention's normalized
// name is kept, and each detail field takes the first non-empty value seen
// for that key; later mentions never overwrite it. Mentions whose name
// normalizes to nothing are dropped.
func Merge(mentions []Mention) []Mention {
	index := make(map[string]int, len(mentions))
	out := make([]Mention, 0, len(mentions))

	for _, m := range mentions {
		name := Normalize(m.Name)
		key := Key(name)
		if key == "" {
			continue
		}

		i, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, Mention{
				Name:      name,
				Dosage:    copyStr(m.Dosage),
				Frequency: copyStr(m.Frequency),
				StartDate: copyStr(m.StartDate),
				EndDate:   copyStr(m.EndDate),
				Purpose:   copyStr(m.Purpose),
			})
			continue
		}

		cur := out[i]
		out[i] = Mention{
			Name:      cur.Name,
			Dosage:    firstPresent(cur.Dosage, m.Dosage),
			Frequency: firstPresent(cur.Frequency, m.Frequency),
			StartDate: firstPresent(cur.StartDate, m.StartDate),
			EndDate:   firstPresent(cur.EndDate, m.EndDate),
			Purpose:   firstPresent(cur.Purpose, m.Purpose),
		}
	}
	return out
}

func firstPresent(cur, next *string) *string {
	if present(cur) {
		return cur
	}
	if present(next) {
		return copyStr(next)
	}
	return cur
}

// copyStr detaches the result from the caller's pointers.
func copyStr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
