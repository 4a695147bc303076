package dom

// Markup contract shared by the server-rendered pages and the engine.
const (
	AttrPermanent   = "data-drive-permanent"
	AttrTrack       = "data-drive-track"
	AttrAction      = "data-drive-action"
	AttrPreload     = "data-drive-preload"
	AttrPreview     = "data-drive-preview"
	AttrEval        = "data-drive-eval"
	AttrConfirm     = "data-drive-confirm"
	AttrSubmitsWith = "data-drive-submits-with"
	AttrStream      = "data-drive-stream"
	AttrDrive       = "data-drive"
	AttrBusy        = "aria-busy"

	MetaVisitControl = "drive-visit-control"
	MetaCacheControl = "drive-cache-control"
	MetaRoot         = "drive-root"
	MetaPlaceholder  = "drive-permanent-placeholder"
	MetaCSPNonce     = "csp-nonce"
	MetaCSRFParam    = "csrf-param"
	MetaCSRFToken    = "csrf-token"

	TagFrame  = "drive-frame"
	TagStream = "drive-stream"

	// StreamContentType is the media type of partial-update responses.
	StreamContentType = "text/vnd.drive-stream.html"
)
