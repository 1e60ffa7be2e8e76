package lovely

// instruction decoding mode for x86asm
const decodeMode = 32
