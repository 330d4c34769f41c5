package pagination

// NextOffset continues offset+limit pagination while a full page came back.
func NextOffset(current Cursor, received, limit int) *Cursor {
	if received < limit || received == 0 {
		return nil
	}
	return &Cursor{Offset: current.Offset + received}
}

// NextPageNumber continues page-number pagination. Page numbering starts at first.
// lastPage is the provider's explicit end flag, when it has one.
func NextPageNumber(current Cursor, first int, received, limit int, lastPage bool) *Cursor {
	if lastPage || received == 0 || (limit > 0 && received < limit) {
		return nil
	}
	page := current.Page
	if page < first {
		page = first
	}
	return &Cursor{Page: page + 1}
}

// NextToken continues cursor pagination while the provider returns a token.
func NextToken(token string) *Cursor {
	if token == "" {
		return nil
	}
	return &Cursor{Token: token}
}

// NextURL continues next-link pagination while the provider returns a link.
func NextURL(url string) *Cursor {
	if url == "" {
		return nil
	}
	return &Cursor{URL: url}
}
