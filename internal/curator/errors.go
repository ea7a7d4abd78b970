package curator

import "errors"

// ErrNotFound is returned by stores when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrMissingContent is reported when the fetch backend signals success without any content.
var ErrMissingContent = errors.New("scrape reported success but markdown content is missing")
