// Copyright 2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package minipb is a minimalist streaming protocol buffer engine.
//
// minipb converts between protobuf byte streams and either in-memory values
// or a sequence of typed events, without generating code per message type.
// A compiled schema ([Context]) binds field numbers to declared types at
// parse time.
//
// The engine is built from four streaming roles that compose:
//
//   - [Source]: pull interface for protobuf values.
//   - [Sink]: push interface for protobuf values.
//   - [ByteSource]: pull interface for bytes.
//   - [ByteSink]: push interface for bytes.
//
// [NewDecoder] produces a Source on top of a ByteSource; [NewEncoder]
// produces a Sink on top of a ByteSink; [StreamData] pumps a Source into a
// Sink until EOF. For consumers that prefer inversion of control over pull,
// [Parser] is a resumable push parser that drives callbacks, comparable to
// the SAX model in XML parsers.
//
// Sample usage of the pull interface:
//
//	func dump(src minipb.Source) error {
//		for {
//			f, err := src.GetDef()
//			if err != nil {
//				return err
//			}
//			if f == nil {
//				return nil // End of this (sub)message.
//			}
//			if f.IsSubmessage() {
//				if err := src.StartMsg(); err != nil {
//					return err
//				}
//				if err := dump(src); err != nil {
//					return err
//				}
//				if err := src.EndMsg(); err != nil {
//					return err
//				}
//				continue
//			}
//			if f.IsString() {
//				s := minipb.NewOwned(0)
//				if err := src.GetStr(s); err != nil {
//					return err
//				}
//				fmt.Println(f.Name, s)
//				continue
//			}
//			v, err := src.GetVal()
//			if err != nil {
//				return err
//			}
//			fmt.Println(f.Name, v)
//		}
//	}
package minipb
