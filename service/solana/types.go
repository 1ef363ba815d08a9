package solana

// versionParseError is the decoder message returned when a node answers a
// legacy transaction request with a versioned payload shape.
const versionParseError = "expects '\"' or 'n', but found '{'"
