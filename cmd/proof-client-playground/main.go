/*
 * Copyright 2024 Galactica Network
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *      http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Galactica-corp/purchase-oracle-service/internal/merkle"
)

type proofResponse struct {
	Status string   `json:"status"`
	Proof  []string `json:"proof"`
	Leaf   string   `json:"leaf"`
	Root   string   `json:"root"`
}

func main() {
	// HTTP client for the purchase oracle service
	//url := "https://purchase-oracle.galactica.com"
	url := "http://localhost:8480"

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(url + "/products/0xabc/external/1001/proof")
	if err != nil {
		panic(err)
	}
	defer resp.Body.Close()

	var proof proofResponse
	if err := json.NewDecoder(resp.Body).Decode(&proof); err != nil {
		panic(err)
	}

	// Print the response
	fmt.Printf("%d %+v\n", resp.StatusCode, proof)

	if proof.Status != "success" {
		return
	}

	path := make([]common.Hash, len(proof.Proof))
	for i, p := range proof.Proof {
		path[i] = common.HexToHash(p)
	}

	fmt.Println("verified:", merkle.Verify(common.HexToHash(proof.Leaf), path, common.HexToHash(proof.Root)))
}
