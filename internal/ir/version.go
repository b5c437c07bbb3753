package ir

// EngineVersion is the quorum engine version reported by the CLI.
const EngineVersion = "0.1.0"
