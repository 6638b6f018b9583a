package classify

import "errors"

// ErrClassificationUnavailable is reported when the model tier cannot run.
// Callers never see it from Classify: the result degrades to a conversational
// category instead.
var ErrClassificationUnavailable = errors.New("classification model unavailable")
