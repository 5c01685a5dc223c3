// Package clip scores video frames against text concepts with a CLIP model
// exported to ONNX.
//
// The vision and text towers are separate ONNX graphs run through ONNX
// Runtime; concept text is tokenized with a HuggingFace tokenizer.json. Frame
// confidence is the softmax over scaled cosine similarities between the
// image embedding and each concept embedding.
package clip
