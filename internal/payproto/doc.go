// Package payproto 实现付费闸门抓取协议的客户端状态机：
// 先做一次未认证探测，收到 402 报价后在预算内取得支付令牌、
// 完成结算，再携带令牌重试一次。协议是严格的线性握手，
// 只有付费与免费一个分支，且每次尝试最多一个支付周期。
package payproto
